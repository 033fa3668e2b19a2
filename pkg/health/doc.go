/*
Package health implements component health probes and bounded polling.

Each component declares one probe: an in-container exec command, a TCP
connect, a DNS query, or a Redis PING. Poll drives a probe within an
explicit budget of attempts and interval; the budget is the only thing
standing between "still starting up" and "unhealthy", so it is always
declared per component, never global.
*/
package health
