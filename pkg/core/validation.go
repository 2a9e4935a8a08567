package core

import "context"

func (i Intent) validationStage() Stage {
	if i == IntentCreate {
		return StageValidationOnCreate
	}
	return StageValidationOnUpdate
}

// validate clears doc's errors and runs
// validation_on_save(validation_on_create|update(validity check)).
// It succeeds iff no stage aborted and no errors remain.
func (db *Database) validate(ctx context.Context, doc Document, intent Intent) bool {
	doc.Errors().Clear()

	r := db.stages(doc)
	ok, _ := r.run(ctx, StageValidationOnSave, doc, func() (bool, error) {
		return r.run(ctx, intent.validationStage(), doc, func() (bool, error) {
			checkValidity(ctx, doc)
			return true, nil
		})
	})
	if !ok {
		db.debug("validation aborted by hook", "intent", intent.String())
		return false
	}
	return doc.Errors().Empty()
}

// checkValidity merges the document's fresh validation errors with the
// entries hooks added before it ran.
func checkValidity(ctx context.Context, doc Document) {
	prior := doc.Errors().Clone()
	fresh := doc.Validate(ctx)
	fresh.Merge(prior)
	doc.Errors().Replace(fresh)
}
