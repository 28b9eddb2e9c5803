// Package batch executes many requests concurrently.
//
// A Runner bounds the number of requests in flight, optionally paces
// request starts with a token bucket, and aggregates latencies in an HDR
// histogram. Results keep the order of the input requests.
package batch
