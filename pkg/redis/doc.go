// Package redis connects to Redis through go-redis with retries and exposes a
// health check.
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	check := redis.Healthcheck(client)
//
// Errors wrap the driver error with errors.Join under ErrRedisNotReady,
// ErrFailedToParseRedisConnString or ErrHealthcheckFailed.
package redis
