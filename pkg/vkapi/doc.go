// Package vkapi calls the provider's batched execute procedures.
//
// Each Client is bound to one egress (a proxy or the direct address) and owns
// its own connection pool. A call sends one batch of identifiers with one
// access token and returns the parsed response as an Envelope:
//
//	env, err := client.Call(ctx, schedule.Users, batch, token)
//	if err != nil {
//	    // transport failure, timeout, HTTP error or malformed body
//	}
//	switch env.Kind {
//	case vkapi.KindSuccess:
//	case vkapi.KindPartialErrors:
//	    if env.Exhausted() {
//	        // the credential hit its quota for this method
//	    }
//	case vkapi.KindHardError:
//	}
package vkapi
