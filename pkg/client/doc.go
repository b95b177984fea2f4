// Package client is a Go client for the hashtrail HTTP API.
//
// Uploads are streamed, so hashing a large file does not buffer it in memory:
//
//	c := client.New("http://localhost:8000")
//	receipt, err := c.HashFile(ctx, "report.pdf")
//	...
//	res, err := c.VerifyFile(ctx, "report.pdf", string(receipt.Hash))
//	if res.Status != "valid" {
//	    // the file changed since it was hashed
//	}
//
// Errors returned by the server are *APIError values. They match the
// errclass sentinels with errors.Is, so callers can test for
// errclass.ErrRateLimited or errclass.ErrPayloadTooLarge directly.
package client
