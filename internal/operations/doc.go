// Package operations holds the S3 transport of the transfer engine.
//
// Each subpackage implements one kind of storage interaction against the
// s3api interfaces: upload and download sessions that move one byte range
// per call, server-side copy, listing and pre-signed URLs. SDK errors are
// translated into the transfer error taxonomy here, once, so retry
// classification never has to look at SDK types.
package operations
