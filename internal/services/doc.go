// Package services sits between the command line and HTTP surfaces and the
// index packages. IndexService turns the configuration into an index,
// runs the pipeline and the diagnostics, writes the results and keeps the
// latest run for readers. HealthService reports liveness and readiness.
//
// Services take their dependencies in the constructor and log through an
// injected *slog.Logger:
//
//	svc, err := services.NewIndexService(cfg, logger, metrics)
//	if err != nil {
//	    return err
//	}
//	result, err := svc.Run(ctx)
package services
