// Package knife loads knife client settings files (knife.rb) into a validated,
// read-only ClientSettings value and writes them back in the same format.
// Only the declarative subset of the Ruby DSL that knife configuration files
// use is understood: "key value" declarations, string/symbol/integer/array
// literals, interpolation of variables bound to File.dirname(__FILE__).
package knife
