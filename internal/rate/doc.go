// Package rate bounds the frequency of sensitive operations (OTP send,
// OTP verification, provider linking) per principal using a fixed-window
// counter held in an ephemeral store with a TTL equal to the window.
package rate
