// Package queue persists the anime processing pipeline in SQLite.
//
// Three tables back the pipeline: anime holds one row per series, jobs holds
// one row per episode and tracks its stage, and anime_selection_cache stores
// the download-source title selection made for each series. Workers claim
// jobs with a single UPDATE ... RETURNING statement, so any number of
// processes can share one database without handing the same job to two
// workers.
package queue
