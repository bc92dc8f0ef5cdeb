// Command webapp builds, verifies and hosts local web applications.
//
// Verbs:
//
//	webapp init <dir> --id com.example.notes   write a starter descriptor and index.html
//	webapp build <dir> [--verify]              package <dir> into a .webapp archive with digests
//	webapp version <dir> [--bump]              print or increase the effective version
//	webapp serve <archive|dir>...              load apps and serve them over HTTP
//	webapp call <appId> <cmd> [json]           send one command over a running host's bridge
//
// Configuration comes from the environment (WEBAPP_ROOT, WEBAPP_VERIFY,
// WEBAPP_DIGEST_POLICY, WEBAPP_TRUST_POLICY, BRIDGE_TIMEOUT, PORT, HOST, ...).
package main
