// Package dataset models uploaded price tables and the derivations the
// pipeline needs: parsing from CSV or Excel, filtering to one ticker, and
// removal of rows with missing values. Missing numerics are represented as
// NaN so a row carries its own null information without a parallel mask.
package dataset
