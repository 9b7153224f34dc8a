/*
Package ports defines the driven ports (interfaces) of the plantopt engine.

These interfaces decouple the planning pipeline from external implementations, allowing
the same assembled program to be solved by different numerical backends and the same
results to be archived in different stores.

# Key Interfaces

  - Backend: a numerical LP solver (in-process simplex or an external process).
  - ResultStore: archives run records (memory, files or Redis).
  - Locker: serializes runs sharing a label across processes.
*/
package ports
