// Package confidence decides whether retrieval evidence is strong enough
// to answer a question.
//
// A decision needs the top score above an absolute floor and, when there
// are competitors, enough separation from the runner-up. Separation is
// measured either as a ratio (top/second, the default) or as a legacy
// subtractive gap (top-second). Rejections are ordinary outcomes with a
// human readable reason, never errors.
package confidence
