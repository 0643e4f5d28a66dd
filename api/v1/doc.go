// Package v1 contains the wire types of the events API shared by the server
// and the eventsctl client.
package v1
