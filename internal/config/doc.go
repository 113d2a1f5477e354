// Package config loads faqgate settings from defaults, an optional YAML
// file, and FAQGATE_* environment variables, in that order.
//
//	retrieval:
//	  top_k: 5
//	  min_similarity: 0.70
//	  policy: ratio
//	  semantic:
//	    min_ratio: 1.10
//	hybrid:
//	  enabled: true
//	  min_ratio: 1.02
//	rerank:
//	  enabled: false
//	sync:
//	  source: ./faq
//	  interval: 30m
//
// Nested keys map to environment names by joining with underscores:
// hybrid.enabled is FAQGATE_HYBRID_ENABLED. Durations use Go syntax.
package config
