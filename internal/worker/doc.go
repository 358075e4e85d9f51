// Package worker renders templates on behalf of other services over Redis Streams.
//
// Jobs are read through a consumer group. Each message carries a JSON
// "data" field:
//
//	{"request_id": "42", "template": "home.html", "data": {"user": {"name": "Ada"}}}
//
// The rendered page is stored under render:output:<request_id> and a
// CompletionEvent is added to the result stream. Failed jobs produce an
// ErrorEvent on <result stream>.errors carrying the render error code.
//
// Example usage:
//
//	redisClient := redis.NewClient(&redis.Options{...})
//	w := worker.NewWorker(settings, redisClient, renderer,
//	    worker.NewRedisOutputStore(redisClient, logger),
//	    worker.NewRedisPublisher(redisClient, logger),
//	    logger)
//	if err := w.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Stop()
package worker
