// Package application provides application initialization and dependency wiring.
// It loads the knife client settings and encapsulates the creation of the AMP
// client, solver, inventory service, storage, handlers, routers and HTTP
// server instances, making the main package cleaner and more focused on CLI
// parsing and orchestration.
package application
