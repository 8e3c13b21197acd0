/*
Package authsdk is a client for the SpendSense authentication service.

A Client keeps the session cookie in its own cookie jar, so one Client is one
browser session as far as the server is concerned:

	client, err := authsdk.NewClient("http://localhost:8080")
	if err != nil {
		return err
	}

	sess, err := client.Login(ctx, "mario", "1234")
	if err != nil {
		var apiErr *authsdk.APIError
		if errors.As(err, &apiErr) && apiErr.Code == authsdk.ErrorCodeAccountLocked {
			fmt.Printf("locked for another %d minutes\n", *apiErr.MinutesRemaining)
		}
		return err
	}

	if sess.State == authsdk.StateMustChangePassword {
		sess, err = client.ChangePassword(ctx, authsdk.ChangePasswordRequest{
			NewPassword: "N3w!password",
			Confirm:     "N3w!password",
		})
	}

# Errors

Every non-2xx response becomes an *APIError carrying the server's error code.
Login failures also carry the remaining attempts at both the account and the
session scope, and lockouts carry the minutes left.

# Thread Safety

A Client is safe for concurrent use, but the server serialises requests that
share a session cookie.
*/
package authsdk
