// Package hdfs is a client library for HTTP-fronted distributed
// filesystems speaking the WebHDFS/HttpFS protocol.
//
// A Client executes filesystem operations against an ordered list of
// candidate namenode endpoints with automatic failover and bounded
// retries, resolves root-relative paths and the #LATEST marker, and moves
// files and directory trees concurrently with chunked streaming, atomic
// per-file commit and progress reporting.
//
// Authentication is an external concern: pass a pre-authenticated
// *http.Client via WithSession and the library never negotiates
// credentials itself.
//
//	client, err := hdfs.New(
//	    hdfs.WithNamenodes("http://nn1:9870", "http://nn2:9870"),
//	    hdfs.WithRoot("/user/alice"),
//	    hdfs.WithTimeout(30*time.Second),
//	)
//	if err != nil {
//	    return err
//	}
//	err = client.Upload(ctx, "data/", "staging/data", hdfs.WithThreads(8))
package hdfs
