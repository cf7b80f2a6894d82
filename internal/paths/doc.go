// Package paths centralizes the layout of the managed data root.
//
// Every artifact the pipeline produces lives under a single root directory:
//
//	videos/<mal-id>/episodes/   temporary, reclaimed after transcription
//	audio/<mal-id>/             temporary, reclaimed after transcription
//	transcripts/<mal-id>/       permanent
//	tokens/<mal-id>/            permanent
//	analysis/per_anime/<mal-id>/
//	cache/                      scraper JSON cache
//	logs/                       per-component log files
//	jobs.db                     the queue database
package paths
