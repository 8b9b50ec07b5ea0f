// Package scoring ranks candidate profiles against an opportunity.
//
// The composite match score combines four components:
//
//	match = Skill*skill + Reputation*reputation + Recency*recency - Workload*workload_pen
//
// skill is the Jaccard similarity of the skill sets, reputation the stored
// candidate rating, recency a min-max scaling of last activity over the
// scored batch and workload_pen the number of open offers scaled over
// [0, WorkloadCap]. Every function in this package is pure so that the
// snapshot frozen on an offer can be reproduced from its inputs.
package scoring
