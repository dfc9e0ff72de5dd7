// Package flash implements the compile-then-upload workflow against the
// external arduino-cli tool: request validation, tool liveness probing, the
// two-phase build/upload execution, serial port enumeration, and the HTTP
// controller exposing it all.
package flash
