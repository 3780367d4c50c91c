// Package domain holds the core types shared across the email dispatch
// pipeline. Types here carry no behavior beyond simple predicates; all
// business logic lives in the service and sending packages.
package domain
