// Package catalog writes finished artifact URLs back onto the content
// catalog: episode and content video URLs, content posters and user avatars.
//
// The catalog lives in its own database connection, usually the web
// application's. Publish is idempotent so a worker that crashes between the
// catalog write and the job's completion can simply repeat it.
package catalog
