// Package client is a Go client for the versefind search API.
//
//	c, err := client.New("https://search.example.com",
//		client.WithAPIKey(os.Getenv("VERSEFIND_API_KEY")),
//		client.WithTimeout(5*time.Second),
//	)
//	if err != nil {
//		return err
//	}
//	resp, err := c.Search(ctx, "peace that passes understanding", client.WithK(5))
//	if errors.Is(err, client.ErrValidation) {
//		// bad query, do not retry
//	}
//
// 400 responses map to ErrValidation, 502 responses to
// ErrEmbeddingProviderError or ErrVectorStoreUnavailable. Every non-2xx
// response is returned as an *APIError carrying the status and message.
package client
