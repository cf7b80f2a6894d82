// Package textutil provides title and filename normalization helpers shared
// by the scraper, selector, downloader, and transcriber.
package textutil
