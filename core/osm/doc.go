// Package osm holds the shared element model and the change-set assembler.
//
// The model covers the three element kinds (node, way, relation), the
// reconstructed history entries produced by the Overpass client, and the
// ElementSet that the inverter and parent fixer hand forward. BuildChange
// converts a final ElementSet into the osmChange submission format,
// including the dependency-respecting relation order.
package osm
