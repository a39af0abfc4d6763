// Package timeout provides an umbrella deadline: a single limit shared by
// every retry and poll loop of a larger operation, so that loops which
// would otherwise retry forever give up together.
package timeout
