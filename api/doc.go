// Package api exposes a lockmgr.ILockService as a JSON REST api for browser based editors,
// and provides a typed Go client for it.
//
// Routes:
//
//	POST /locks/{collection}/{resourceId}/acquire    200 granted, 423 held by someone else
//	POST /locks/{collection}/{resourceId}/extend     200 extended, 400 not extended
//	POST /locks/{collection}/{resourceId}/release    200 released, 400 not released
//	POST /locks/{collection}/{resourceId}/transfer   200 moved, 423 refused, 400 nothing to move
//	GET  /locks/{collection}/{resourceId}/status     ?tabId=&lockGroup=
//	GET  /locks/{collection}                         live locks of a collection
//	GET  /healthz
//	GET  /metrics                                    prometheus text format
//
// Invalid input is answered with 400, an unknown caller with 401 and store failures with 500.
// All bodies are JSON. The tab id is read from the body and falls back to the X-Tab-ID header.
// Every POST route needs one, only the holding tab may extend or release a lock.
//
// Identity:
//
//	With a JWT secret configured every lock route needs an HS256 bearer token whose "sub"
//	claim is the user id ("email" and "name" are optional). Without a secret the server runs
//	in development mode and trusts the X-User-ID, X-User-Email and X-User-Name headers.
//
// Usage Example:
//
//	handler, err := api.NewHandler(svc, api.Config{Leases: lockmgr.LeasePolicy{Default: 10 * time.Minute}})
//	if err != nil {
//	    // handle error
//	}
//	go api.ListenAndServe(ctx, ":8080", handler)
//
//	client := api.NewClient("localhost:8080", api.WithIdentity(api.Identity{UserID: "u-1"}))
//	res, err := client.Acquire(ctx, "magazine_sections", "sec-42", api.AcquireRequest{TabID: "tab-1"})
package api
