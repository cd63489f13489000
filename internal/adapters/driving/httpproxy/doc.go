// Package httpproxy is the local HTTP front of larder.
//
// It answers page and media requests through the stale-while-revalidate
// cache controller, serves downloaded assets under /assets/, and exposes
// status and Prometheus metrics under /_larder/.
package httpproxy
