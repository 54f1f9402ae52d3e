//go:build ignore

// SPDX-License-Identifier: Apache-2.0
// agis Observability Dashboards
// This file documents dashboard templates for an OpenTelemetry UI or Grafana.
//
// DASHBOARD: Remote Calls
//   Health of the language-model gateway.
//
//   Queries:
//   - agis.gateway.calls{agis.role.alias, outcome} (rate 5m)
//     Metric: Calls per role split by success/failure
//     Display: Stacked bar chart per role
//
//   - agis.gateway.duration{agis.role.alias} (p50, p95)
//     Metric: Call latency including retries and backoff
//     Display: Line chart
//     Note: a p95 above 7s on a healthy service usually means retries
//
//   - agis.gateway.retries{agis.gateway.error_code} (rate 5m)
//     Metric: Retries by cause (RATE_LIMIT, SERVER_ERROR)
//     Display: Stacked area chart
//     Alert Threshold: RATE_LIMIT retries > 30/min for 5m
//
// DASHBOARD: Errors
//
//   - agis.errors.total{error.code, component, recoverable}
//     Breakdown: code x component (gateway, executor, leadership, orchestrator)
//     Display: Heatmap or table
//     Insight: AUTH_ERROR and INVALID_REQUEST are never retried; any
//     sustained rate is a configuration problem, not an outage.
//
// DASHBOARD: Orchestration
//
//   - agis.orchestration.cycles{agis.orchestration.phase} (rate 5m)
//     Metric: Orchestrator turns by phase
//     Display: Line chart
//
//   - agis.orchestration.escalations{reason}
//     Metric: Questions handed to the user (ask_human, loop_limit)
//     Display: Single stat per reason
//     Alert Threshold: loop_limit > 0 in 1h (runs hitting the cycle ceiling)
//
//   - agis.executor.tasks{agis.role.alias, outcome}
//     Metric: Delegated tasks per role; failed tasks were replaced by apologies
//     Display: Table sorted by failure ratio
//
//   - agis.leadership.verdicts{step, agis.leadership.verdict}
//     Metric: Audit, evaluation and review decisions
//     Display: Stacked bar per step
//     Insight: the first drafts are always rejected, so review rejections
//     below two thirds of reviews point at a broken
//     draft loop.
//
// ALERT RULES (Prometheus/AlertManager format):
//
// Alert 1: Gateway Failing
//   Name: AgisGatewayFailing
//   Condition: rate(agis.gateway.calls{outcome="failure"}[5m])
//              / rate(agis.gateway.calls[5m]) > 0.2
//   Duration: 5m
//   Severity: critical
//
// Alert 2: Authentication Broken
//   Name: AgisAuthErrors
//   Condition: increase(agis.errors.total{error.code="AUTH_ERROR"}[5m]) > 0
//   Severity: critical
//
// Alert 3: Runs Stuck
//   Name: AgisLoopLimit
//   Condition: increase(agis.orchestration.escalations{reason="loop_limit"}[1h]) > 3
//   Severity: warning
//
// TRACES:
//
//   Span tree of one cycle:
//     orchestrator.cycle (agis.orchestration.cycle, agis.orchestration.phase)
//       gateway.Call (agis.role.alias, gen_ai.request.model, agis.gateway.attempt)
//       executor.Run (agis.orchestration.task_count)
//         gateway.Call x N
//       leadership.Run (agis.leadership.draft_loop, agis.leadership.verdict)
//
//   Log records carry trace_id and span_id, so a failed run can be followed
//   from the "orchestrator.failed" record to the gateway span that failed.
//
package main

// This file is documentation only and is not compiled.
// See pkg/telemetry/metrics.go for the instruments.
