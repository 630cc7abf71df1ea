// Package ws implements the WebSocket hub for sleeperqc-server.
//
// Hub manages a set of connected clients and streams shift reports to them:
// every interval the full set of live shifts, and immediately after a write
// the one shift that changed (Notify). A client may pass ?container=<id> to
// watch a single shift.
//
// Message format sent to clients:
//
//	{
//	  "event":        "report" | "update",
//	  "generated_at": "2024-03-01T06:00:00Z",
//	  "data":         [ /* same schema as GET /api/v1/containers/{cid}/report */ ]
//	}
//
// The upgrader accepts all origins. Apply CORS restrictions at the reverse
// proxy level. The server mounts the hub at /ws/stream.
package ws
