// Package eero provides a client for the eero mesh Wi-Fi cloud service.
//
// The client handles the passwordless login flow, keeps the session in a
// credential store and exchanges JSON payloads with the service. Payloads are
// returned as json.RawMessage exactly as the service sent them.
//
// # Authentication
//
// eero sends a one-time code to an email address or phone number:
//
//	client, err := eero.New(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if !client.IsAuthenticated(ctx) {
//	    if err := client.Login(ctx, "user@example.com"); err != nil {
//	        log.Fatal(err)
//	    }
//	    // read the code from the user
//	    if err := client.Verify(ctx, code); err != nil {
//	        log.Fatal(err)
//	    }
//	}
//
// A verified session is persisted and loaded again by the next New call.
// Sessions expire 30 days after verification.
//
// # Credential Storage
//
// By default the session is kept in the system keyring. When the keyring is
// unavailable the client falls back to a JSON file readable only by the
// owner, <user config dir>/eero/session.json. Select a backend explicitly with
// ClientConfig.Storage, or pass a credential.Store of your own.
//
// # Errors
//
// Every error carries one kind from the apierror package:
//
//	networks, err := client.Networks(ctx)
//	if errors.Is(err, apierror.ErrAuthentication) {
//	    // the session was rejected, log in again
//	}
//
// A rejected session is dropped from the store on the next check.
//
// # Rate Limiting
//
// The client limits itself to 600 requests per minute by default. Adjust with
// ClientConfig.RateLimitPerMinute, or pass a negative value to disable it.
//
// # Retry Logic
//
// Requests are not retried by default. With ClientConfig.MaxReadRetries set,
// GET requests are retried with exponential backoff on 429, 5xx and network
// errors, and Retry-After is honored. Writes such as RebootEero are never
// retried.
//
// # Example Usage
//
//	client, err := eero.NewWithConfig(ctx, &eero.ClientConfig{
//	    Timeout:        10 * time.Second,
//	    MaxReadRetries: 3,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	devices, err := client.Devices(ctx, "") // preferred network
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(string(devices))
package eero
