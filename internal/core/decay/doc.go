// Package decay implements the shadow-count aging policy.
//
// Every record tracks the start of its current counting period
// (LastDecayAt). Periods are aligned to the unix epoch, so two records
// written in the same wall-clock period share the same boundary. When a
// write lands at or after LastDecayAt+Period, the record rotates: the
// current count moves into the shadow slot and counting restarts with the
// write's increment. A record rotates at most once per crossing.
//
// Rotation is access-driven by default. Sweep provides the time-driven
// variant used by the engine's background sweep.
package decay
