// Package convert provides the standard transform steps used to build feat
// and action pipelines: value mapping, membership checking, unit conversion,
// range/grid checking and string-template parsing.
//
// Every "from spec" constructor follows the same contract:
//
//   - a nil spec means "no converter" and yields an identity step
//   - a pipeline.Step or func(any) (any, error) spec is used as-is
//   - a []any spec is a per-component list producing one tuple-aware step
//     that applies each sub-converter element-wise
//   - any other type is rejected with ErrBadSpec and a descriptive message
//
// Individual steps fail with ErrInvalidValue, ErrOutOfRange or ErrParse;
// check with errors.Is. Failures carry enough context to identify the
// offending value and the accepted domain.
package convert
