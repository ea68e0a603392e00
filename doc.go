// Package transfer provides resumable, cancellable object uploads and
// downloads on top of S3 or any other transfertypes.Transport.
//
// Content is split into byte-range parts that move concurrently with a
// bounded worker pool, each part retried with exponential backoff. Every
// transfer is a task with pause, resume, cancel and progress controls, and
// every task, as well as every Copy, is enrolled in a cancellation registry
// so it can be cancelled by its handle from anywhere in the program.
//
// Next to transfers the client lists objects by access-level prefix, signs
// download URLs and removes objects.
//
// Example usage:
//
//	client, err := transfer.New(ctx,
//	    transfer.WithRegion("eu-central-1"),
//	    transfer.WithBucket("my-bucket"),
//	)
//	if err != nil {
//	    return err
//	}
//
//	task, err := client.Upload(ctx, transfertypes.NewIdentity("photos/cat.jpg"), content.FromBytes(data),
//	    transfer.WithUploadProgress(func(p transfertypes.Progress) {
//	        fmt.Printf("%.0f%%\n", p.Fraction()*100)
//	    }),
//	)
//	if err != nil {
//	    return err
//	}
//
//	// From any goroutine:
//	//   client.Cancel(task.Handle())
//
//	ref, err := task.Result(ctx)
package transfer
