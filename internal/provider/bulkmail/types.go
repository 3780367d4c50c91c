package bulkmail

// BatchRecipient is one (address, personalization) pair in a bulk call.
type BatchRecipient struct {
	Address          Address                `json:"address"`
	SubstitutionData map[string]interface{} `json:"substitution_data,omitempty"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}

// Address is a provider-facing email address.
type Address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Content is the rendered template shared by every recipient of a
// batch. Rendering happens upstream; this package only transports it.
type Content struct {
	From    Address `json:"from"`
	Subject string  `json:"subject"`
	HTML    string  `json:"html,omitempty"`
	Text    string  `json:"text,omitempty"`
	ReplyTo string  `json:"reply_to,omitempty"`
}

// Options controls provider-side tracking features per transmission.
type Options struct {
	OpenTracking  bool `json:"open_tracking"`
	ClickTracking bool `json:"click_tracking"`
}

// Submission is one bulk-send API call: a recipients array plus the
// rendered template.
type Submission struct {
	Recipients []BatchRecipient       `json:"recipients"`
	Content    Content                `json:"content"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Options    *Options               `json:"options,omitempty"`
}

// Result is the provider's response to a bulk submission. ProviderID
// correlates later webhook events back to this batch.
type Result struct {
	ProviderID string `json:"id"`
	Accepted   int    `json:"accepted"`
	Rejected   int    `json:"rejected"`
}

type apiResponse struct {
	Results struct {
		ID                  string `json:"id"`
		TotalAcceptedRecips int    `json:"total_accepted_recipients"`
		TotalRejectedRecips int    `json:"total_rejected_recipients"`
	} `json:"results"`
	Errors []struct {
		Message     string `json:"message"`
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"errors,omitempty"`
}
