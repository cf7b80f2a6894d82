// Package diskspace meters pipeline storage and gates download admission.
//
// Usage is measured by walking the artifact directories, cached for a short
// TTL so a pool of workers polling before every claim does not hammer the
// filesystem. Admission uses two thresholds with hysteresis: downloads pause
// when usage crosses the pause threshold and stay paused until cleanup brings
// usage back under the lower resume threshold.
package diskspace
