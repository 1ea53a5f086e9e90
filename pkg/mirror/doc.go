// Package mirror implements mirror groups: the set of replica descriptors
// serving one logical shard, and the four replica-selection strategies
// (random, round-robin, avoid-dead, avoid-errors) that pkg/dispatch uses to
// pick a concrete target for each dispatch attempt.
//
// A single-mirror group always short-circuits to its sole replica. Every
// multi-mirror group keeps a 16-bit weight per replica (sum preserved at
// 65535) used to break ties between equally-ranked candidates under
// avoid-dead/avoid-errors, recalculated from recent latency at most once
// per half karma-period.
package mirror
