// Package bloop reports structured error events and LLM execution traces to
// a bloop ingestion service.
//
// Records are buffered in memory per category and sent as one signed batch
// when a buffer reaches its threshold, or when Flush or Shutdown is called.
// Telemetry calls never return errors to the host application; dispatch
// failures can be observed through WithErrorHandler or WithLogger.
//
//	client, err := bloop.New(bloop.Config{
//		Endpoint:   "https://bloop.example.com",
//		ProjectKey: os.Getenv("BLOOP_PROJECT_KEY"),
//	})
//	if err != nil {
//		return err
//	}
//	defer client.Shutdown(context.Background())
//
//	client.CaptureError("TypeError", "something broke")
//
// Nothing is persisted: buffered records are lost if the process exits
// without calling Shutdown.
package bloop
