// Package engine is a minimal tax-benefit rules engine.
//
// It provides the three things the policy service needs from a
// microsimulation engine:
//
//   - a hierarchical, time-varying parameter tree (Node, Parameter, Scale)
//     that can be mutated in place with Update
//   - a catalog of variables whose formulas are evaluated lazily and
//     memoised per simulation, with neutralisation (abolition) support
//   - simulations of a tabular population (Data) under a configured System
//
// # Systems Are Owned
//
// A System is mutated in place by reforms. It is not safe for concurrent
// mutation and must never be shared between two logical reforms; callers
// build a fresh System per reform (see country.Country.NewSystem).
//
// Simulations are safe for concurrent Calculate calls once built.
//
// # Parameter Files
//
// Parameter trees load from OpenFisca-style YAML:
//
//	income_tax:
//	  description: Income tax
//	  basic_rate:
//	    metadata:
//	      name: basic_rate
//	      unit: /1
//	    values:
//	      2015-01-01: 0.2
//
// A mapping with a values key is a Parameter, a mapping with a brackets key
// is a Scale, and any other mapping is a Node.
package engine
