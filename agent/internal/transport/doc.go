// Package transport builds the authenticated HTTP clients the agent uses to
// poll SCADA sources and to ship observations to sleeperqc-server. Supported
// modes: mtls, apikey (configurable header), bearer, basic and none.
package transport
