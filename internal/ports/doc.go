// Package ports defines the interfaces (ports) that connect the application
// layer to infrastructure adapters.
//
// Ports are the boundaries between the application core and the outside
// world. They define what the application needs from external systems
// without specifying how those needs are fulfilled.
//
// # Port Interfaces
//
//   - [Store]: Durable local storage for transactions, products and the cart
//   - [Submitter]: Submits one transaction to the tenant service
//   - [CredentialsProvider]: Supplies the tenant API key/secret
//   - [Prober]: Reports link-level connectivity
//   - [Logger]: Structured logging abstraction
//   - [HTTPClient]: HTTP request abstraction for dependency injection
//
// # Usage
//
// The application layer (internal/app) depends only on these interfaces.
// Infrastructure adapters (internal/adapters) implement these interfaces
// with concrete implementations (SQLite, memory, HTTP, zerolog, etc.).
package ports
