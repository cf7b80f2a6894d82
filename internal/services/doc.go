// Package services holds the error taxonomy shared by the pipeline's
// external-tool adapters and API clients, plus the adapter packages
// themselves in subdirectories.
package services
