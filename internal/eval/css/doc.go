// Package css transforms the stylesheet parts of HTML markup.
//
// Only the body of <style> elements and the value of style attributes are
// treated as CSS. Everything else in the markup is returned byte for byte.
//
// Example usage:
//
//	processor := css.NewProcessor(css.Options{Stage: 0})
//
//	out := processor.Process(`<p style="place-items: center; opacity: 50%">`)
//	// <p style="align-items: center; justify-items: center; opacity: 0.5">
//
// Features follow the staging of CSS proposals: a feature is enabled when its
// stage is greater than or equal to the configured stage, so stage 0 enables
// everything.
//
// Built-in features:
//   - logical-properties-and-values (2) - margin-inline-start: 1px -> margin-left: 1px
//   - place-properties (2) - place-items: a b -> align-items: a; justify-items: b
//   - overflow-property (2) - overflow: a b -> overflow-x: a; overflow-y: b
//   - opacity-percentage (2) - opacity: 50% -> opacity: 0.5
//   - system-ui-font-family (2) - system-ui gets a fallback font stack
//   - color-functional-notation (2) - rgb(0 0 0 / 50%) -> rgba(0, 0, 0, 0.5)
//   - hexadecimal-alpha-notation (4) - #ff000080 -> rgba(255, 0, 0, 0.502)
//
// Declarations that no feature changes keep their original text. CSS the
// scanner cannot tokenize is left untouched.
package css
