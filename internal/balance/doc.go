// Package balance provides the interchangeable load-balancing strategies the
// coordinator uses to choose a worker for a task.
//
// Every strategy implements [Strategy] and picks among the [Candidate]
// workers the coordinator considers eligible. Strategies never mutate tasks;
// the coordinator applies their choice through the distributor.
//
//   - [RoundRobin]: cycles through candidates in worker ID order
//   - [LeastLoaded]: picks the candidate with the fewest assigned hours
//   - [PriorityBased]: least-loaded for High/Critical, round-robin otherwise
//   - [SkillBased]: restricts to workers whose registered capabilities cover
//     the task's tags, then least-loaded
package balance
