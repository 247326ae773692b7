// Package config loads the application configuration.
//
// # Configuration Sources
//
// Values are layered, later sources overriding earlier ones:
//
//  1. Default values
//  2. A YAML file
//  3. Environment variables
//
// # Environment Variables
//
// Environment variables use the TPI prefix and the section name:
//
//	TPI_SERVER_PORT=8080
//	TPI_LOGGING_LEVEL=debug
//	TPI_PIPELINE_SCALER=robust
//	TPI_DIAGNOSTICS_NEIGHBOR_RANGE=2,5,10
//
// Indicator lists, country sets and scaler or imputer parameters can only
// be set in the YAML file.
//
// # Paths
//
// Relative paths resolve against the directory holding the YAML file, or
// the working directory when there is none:
//
//	cfg, err := config.Load("configs/tpi.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	paths, err := cfg.GetPaths()
package config
