// Package attribute implements the attribute pipeline of a persisted entity.
//
// A Model holds an attribute bag (field name to raw stored value) described by
// a Schema. Every read, write and bulk export of the bag goes through a
// Pipeline: an explicit, ordered list of named stages.
//
// Read path (Model.Get):
//
//	accessor -> cast -> date
//
// Write path (Model.Set):
//
//	mutator -> date -> enum -> class -> json -> path -> store
//
// Export path (Model.ToMap):
//
//	snapshot -> accessors -> format dates -> casts -> appends
//
// Stages return done=true to short-circuit the rest of the chain. Other
// packages extend the pipeline by inserting their own stages at a named
// position, for example:
//
//	p := attribute.NewPipeline()
//	err := p.InsertGetBefore(attribute.StageCast, attribute.Stage{
//	    Name: "decrypt",
//	    Run:  decryptStage,
//	})
package attribute
