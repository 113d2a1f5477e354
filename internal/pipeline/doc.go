// Package pipeline answers FAQ questions end to end.
//
// Stages run strictly in order for each question:
//
//  1. Retrieve: the searcher embeds the question and ranks chunks in the
//     configured mode
//  2. Gate: the confidence policy for that mode decides whether the
//     evidence is strong enough
//  3. Generate: only when the gate accepts, the generator writes an answer
//     grounded in the ranked results
//  4. Correlate: recent status updates are matched against the question's
//     vector and, for an answered question, appended to the answer
//
// # Outcomes
//
// A declined question is a result, not an error:
//
//	res, err := p.Answer(ctx, "how do I deploy to staging?")
//	if err != nil {
//	    return err // validation or embedding/reranker failure
//	}
//	switch res.Outcome {
//	case pipeline.OutcomeAnswered:
//	case pipeline.OutcomeNoResults, pipeline.OutcomeLowConfidence:
//	case pipeline.OutcomeGenerationFailed:
//	}
//
// A failed generation keeps the results, the confidence decision and the
// correlated status updates.
package pipeline
