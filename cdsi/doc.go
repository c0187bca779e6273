/*
Package cdsi orchestrates a contact discovery lookup against an attested lookup
enclave.

A lookup resolves a set of E.164 phone numbers to account identifiers (ACIs) and
phone number identifiers (PNIs). ACIs are only revealed for accounts the caller
proves access to by supplying the account's access key.

# Flow

	RequestOptions
	    │  BuildRequest (ErrParse / ErrEncoding before any network use)
	    ▼
	LookupRequest ──► connect phase (Engine.NewLookup or Engine.NewLookupRoutes)
	                      │ LookupHandle
	                      ▼
	                  completion phase (Engine.Complete)
	                      │ RawLookupResult
	                      ▼
	                  ProjectResponse ──► Response

Each phase is spawned on the client's AsyncContext and raced against the caller's
context with asyncctx.MakeCancellable. Cancelling the context aborts whichever
phase is running and the lookup fails with interfaces.ErrCancelled; the
completion phase is never issued once the context is done.

# Connect Strategies

RequestOptions.UseNewConnectLogic selects the connect phase entry point:

  - false (default): legacy strategy, the connection manager's direct endpoint
  - true: route-based strategy, endpoints resolved by the connection manager

# Example

	client, err := cdsi.NewClient(cdsi.Deps{
	    AsyncContext:      ac,
	    ConnectionManager: cm,
	    Engine:            engine.New(logger),
	    Log:               logger,
	})

	resp, err := client.Lookup(ctx, interfaces.ServiceAuth{Username: u, Password: p}, cdsi.RequestOptions{
	    E164s: []string{"+15551234567"},
	})
	for e164, entry := range resp.Entries {
	    ...
	}
*/
package cdsi
