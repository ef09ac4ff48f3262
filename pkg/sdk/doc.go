// Package catalograg provides a Go client for the catalograg chat API.
//
// A session holds one conversation. Each message is validated, answered
// from the product catalog and recorded in the session history.
//
//	client, _ := catalograg.New("http://localhost:8080", catalograg.WithAPIKey(key))
//	id, _ := client.CreateSession(ctx)
//	resp, _ := client.SendMessage(ctx, id, "Which laptops have 16GB RAM?")
//	if !resp.IsValid {
//	    // off-topic question, resp.Response explains why
//	}
//
// Errors returned by the server are *APIError values. They match the
// package sentinels with errors.Is:
//
//	if errors.Is(err, catalograg.ErrSessionNotFound) { ... }
package catalograg
